package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/questions"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for profile resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages member profiles.
type Service struct {
	db      *gorm.DB
	now     func() time.Time
	logger  *zap.Logger
	cache   sync.Map
	flights singleflight.Group
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// AutoMigrate creates or updates the profiles table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Profile{})
}

// ResolveProfile returns the profile for the session claims, creating it the
// first time the member is seen and refreshing changed contact details after.
func (s *Service) ResolveProfile(ctx context.Context, claims auth.SessionClaims) (Profile, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return Profile{}, ErrInvalidIdentity
	}

	if cached, ok := s.cache.Load(subject); ok {
		if profile, ok := cached.(Profile); ok && !profileChanged(profile, claims) {
			return profile, nil
		}
	}

	db := s.db.WithContext(ctx)
	var profile Profile
	err := db.Where("user_id = ?", subject).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := Profile{
			UserID:      subject,
			Provider:    provider,
			Username:    usernameFor(claims.UserEmail, subject),
			Email:       normalize(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
			AvatarURL:   normalize(claims.UserAvatarURL),
			LastSeenAt:  s.now().UTC(),
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&created)
		if result.Error != nil {
			s.logger.Error("profile insert failed", zap.String("user_id", subject), zap.Error(result.Error))
			return Profile{}, result.Error
		}
		if result.RowsAffected == 1 {
			s.cache.Store(subject, created)
			return created, nil
		}
		// A concurrent request stored the profile first.
		err = db.Where("user_id = ?", subject).First(&profile).Error
	}
	if err != nil {
		return Profile{}, err
	}
	s.refreshProfile(db, &profile, claims)

	s.cache.Store(subject, profile)
	return profile, nil
}

// ProfilesByID loads the profiles for the given user ids, keyed by id.
// Unknown ids are absent from the result.
func (s *Service) ProfilesByID(ctx context.Context, userIDs []string) (map[string]Profile, error) {
	unique := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	result := make(map[string]Profile, len(unique))
	if len(unique) == 0 {
		return result, nil
	}
	var profiles []Profile
	if err := s.db.WithContext(ctx).Where("user_id IN ?", unique).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, profile := range profiles {
		result[profile.UserID] = profile
	}
	return result, nil
}

// BestMembers returns the members with the most answers, most active first.
func (s *Service) BestMembers(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 {
		return []Profile{}, nil
	}
	shared, err, _ := s.flights.Do(fmt.Sprintf("best_members:%d", limit), func() (any, error) {
		answers := questions.Answer{}.TableName()
		var profiles []Profile
		err := s.db.WithContext(context.WithoutCancel(ctx)).
			Model(&Profile{}).
			Select(fmt.Sprintf("profiles.*, COUNT(%s.id) AS num_answers", answers)).
			Joins(fmt.Sprintf("LEFT JOIN %s ON %s.author_id = profiles.user_id", answers, answers)).
			Group("profiles.user_id").
			Order("num_answers DESC, profiles.username ASC").
			Limit(limit).
			Find(&profiles).Error
		if err != nil {
			s.logger.Error("best members query failed", zap.Int("limit", limit), zap.Error(err))
			return nil, err
		}
		return profiles, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]Profile(nil), shared.([]Profile)...), nil
}

// refreshProfile stores changed contact details and the last-seen time.
// Failures are logged and the in-memory profile is still returned.
func (s *Service) refreshProfile(db *gorm.DB, profile *Profile, claims auth.SessionClaims) {
	updates := map[string]interface{}{}
	if email := normalize(claims.UserEmail); email != "" && email != profile.Email {
		updates["email"] = email
		profile.Email = email
	}
	if display := normalize(claims.UserDisplayName); display != "" && display != profile.DisplayName {
		updates["display_name"] = display
		profile.DisplayName = display
	}
	if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != profile.AvatarURL {
		updates["avatar_url"] = avatar
		profile.AvatarURL = avatar
	}
	profile.LastSeenAt = s.now().UTC()
	updates["last_seen_at"] = profile.LastSeenAt
	if err := db.Model(&Profile{}).Where("user_id = ?", profile.UserID).Updates(updates).Error; err != nil {
		s.logger.Warn("profile refresh failed", zap.String("user_id", profile.UserID), zap.Error(err))
	}
}

func profileChanged(profile Profile, claims auth.SessionClaims) bool {
	if email := normalize(claims.UserEmail); email != "" && email != profile.Email {
		return true
	}
	if display := normalize(claims.UserDisplayName); display != "" && display != profile.DisplayName {
		return true
	}
	if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != profile.AvatarURL {
		return true
	}
	return false
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := "default"
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}

	return provider, subject
}
