package projector

import (
	"log/slog"

	"github.com/papercomputeco/nestlog/pkg/event"
)

// typeKinds maps extraction type strings onto timeline kinds. Types are
// checked before categories so "medication" under health lands on its own
// kind.
var typeKinds = map[string]event.Kind{
	"bottle":  event.KindFeeding,
	"breast":  event.KindFeeding,
	"formula": event.KindFeeding,
	"solid":   event.KindFeeding,
	"meal":    event.KindFeeding,
	"snack":   event.KindFeeding,
	"water":   event.KindFeeding,

	"nap":         event.KindSleep,
	"night_sleep": event.KindSleep,
	"wake_up":     event.KindSleep,

	"wet":   event.KindDiaper,
	"dirty": event.KindDiaper,
	"mixed": event.KindDiaper,
	"dry":   event.KindDiaper,

	"symptom":      event.KindHealth,
	"temperature":  event.KindHealth,
	"vaccination":  event.KindHealth,
	"doctor_visit": event.KindHealth,
	"allergy":      event.KindHealth,
	"injury":       event.KindHealth,
	"medication":   event.KindMedication,

	"weight":             event.KindGrowth,
	"height":             event.KindGrowth,
	"head_circumference": event.KindGrowth,

	"motor":     event.KindMilestone,
	"language":  event.KindMilestone,
	"social":    event.KindMilestone,
	"cognitive": event.KindMilestone,

	"play":       event.KindActivity,
	"outdoor":    event.KindActivity,
	"bath":       event.KindActivity,
	"tummy_time": event.KindActivity,
	"reading":    event.KindActivity,
	"learning":   event.KindActivity,

	"happy": event.KindMood,
	"calm":  event.KindMood,
	"fussy": event.KindMood,
	"upset": event.KindMood,

	"general":    event.KindGenericNote,
	"curriculum": event.KindGenericNote,
}

var categoryKinds = map[event.Category]event.Kind{
	event.CategoryFeeding:   event.KindFeeding,
	event.CategorySleep:     event.KindSleep,
	event.CategoryDiaper:    event.KindDiaper,
	event.CategoryHealth:    event.KindHealth,
	event.CategoryGrowth:    event.KindGrowth,
	event.CategoryMilestone: event.KindMilestone,
	event.CategoryActivity:  event.KindActivity,
	event.CategoryMood:      event.KindMood,
	event.CategoryNote:      event.KindGenericNote,
}

// KindFor maps a candidate onto a timeline kind. It never fails: anything
// unrecognised is logged and becomes a generic note.
func KindFor(c event.Candidate, logger *slog.Logger) event.Kind {
	if k, ok := typeKinds[c.Type]; ok {
		return k
	}
	if k, ok := categoryKinds[c.Category]; ok {
		return k
	}
	logger.Warn("unmapped event type, using generic note", "category", c.Category, "type", c.Type)
	return event.KindGenericNote
}
