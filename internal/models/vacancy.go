package models

import (
	"time"

	"github.com/lib/pq"
)

// Vacancy is an open position a candidate can be matched against when they
// identify themselves via free-text search instead of a PIN code.
type Vacancy struct {
	ID       string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title    string         `gorm:"column:title;type:text;index" json:"title"`
	Location string         `gorm:"column:location;type:text" json:"location,omitempty"`
	Skills   pq.StringArray `gorm:"column:skills;type:text[]" json:"skills"`
	Active   bool           `gorm:"column:active;not null;default:true" json:"active"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Vacancy) TableName() string { return "vacancies" }
