package questions

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	queryIDIn      = "id IN ?"
	queryNameIn    = "name IN ?"
	queryIDEquals  = "id = ?"
	tagInsertBatch = 500
)

// Models lists every table owned by this package.
func Models() []any {
	return []any{&Tag{}, &Question{}, &QuestionTag{}, &Answer{}, &QuestionLike{}, &AnswerLike{}}
}

// AutoMigrate registers the question/tag join table and migrates the schema.
func AutoMigrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&Question{}, "Tags", &QuestionTag{}); err != nil {
		return err
	}
	return db.AutoMigrate(Models()...)
}

// upsertTagsByName inserts every name that does not exist yet and returns the
// resolved rows, new and pre-existing, in the order of names. Concurrent
// creators of the same name converge on the single row the unique index keeps.
func upsertTagsByName(tx *gorm.DB, names []string) ([]Tag, error) {
	if len(names) == 0 {
		return []Tag{}, nil
	}

	candidates := make([]Tag, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, Tag{Name: name})
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).CreateInBatches(&candidates, tagInsertBatch).Error; err != nil {
		return nil, err
	}

	var stored []Tag
	if err := tx.Where(queryNameIn, names).Find(&stored).Error; err != nil {
		return nil, err
	}
	byName := make(map[string]Tag, len(stored))
	for _, tag := range stored {
		byName[tag.Name] = tag
	}
	resolved := make([]Tag, 0, len(names))
	for _, name := range names {
		if tag, ok := byName[name]; ok {
			resolved = append(resolved, tag)
		}
	}
	return resolved, nil
}

// linkTags inserts question/tag pairs, ignoring pairs that already exist.
func linkTags(tx *gorm.DB, questionID int64, tags []Tag) error {
	if len(tags) == 0 {
		return nil
	}
	links := make([]QuestionTag, 0, len(tags))
	for _, tag := range tags {
		links = append(links, QuestionTag{QuestionID: questionID, TagID: tag.ID})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}
