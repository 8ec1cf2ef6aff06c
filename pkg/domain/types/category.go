package types

import (
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Category classifies a project's nature. It stretches stage deadlines and
// loosens notification urgency thresholds.
type Category string

const (
	CategoryOperational   Category = "operational"
	CategoryCommunication Category = "communication"
	CategoryInnovation    Category = "innovation"
	CategoryStrategic     Category = "strategic"
)

// AllCategories returns all categories
func AllCategories() []Category {
	return []Category{
		CategoryOperational,
		CategoryCommunication,
		CategoryInnovation,
		CategoryStrategic,
	}
}

// Validate checks if the category is known
func (c Category) Validate() error {
	switch c {
	case CategoryOperational, CategoryCommunication, CategoryInnovation, CategoryStrategic:
		return nil
	}
	return goerr.New("invalid category", goerr.V("category", c))
}

// Multiplier returns the deadline multiplier. Unknown categories use 1.0.
func (c Category) Multiplier() float64 {
	switch c {
	case CategoryCommunication:
		return 1.2
	case CategoryInnovation:
		return 1.5
	case CategoryStrategic:
		return 2.0
	default:
		return 1.0
	}
}

// ScaleDays applies the multiplier to days and rounds up to whole days
func (c Category) ScaleDays(days int) time.Duration {
	if days <= 0 {
		return 0
	}
	scaled := int(math.Ceil(float64(days)*c.Multiplier() - 1e-9))
	return time.Duration(scaled) * 24 * time.Hour
}

// UrgencyThresholds returns the time-to-deadline under which notifications
// of this category become urgent and high respectively. ok is false for
// unknown categories.
func (c Category) UrgencyThresholds() (urgent, high time.Duration, ok bool) {
	switch c {
	case CategoryOperational:
		return 6 * time.Hour, 24 * time.Hour, true
	case CategoryCommunication:
		return 12 * time.Hour, 48 * time.Hour, true
	case CategoryInnovation:
		return 24 * time.Hour, 72 * time.Hour, true
	case CategoryStrategic:
		return 48 * time.Hour, 168 * time.Hour, true
	default:
		return 0, 0, false
	}
}

func (c Category) String() string {
	return string(c)
}
