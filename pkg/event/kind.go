package event

// Kind is the closed set of record types projected onto the timeline.
type Kind string

const (
	KindFeeding     Kind = "feeding"
	KindSleep       Kind = "sleep"
	KindDiaper      Kind = "diaper"
	KindHealth      Kind = "health"
	KindMedication  Kind = "medication"
	KindGrowth      Kind = "growth"
	KindMilestone   Kind = "milestone"
	KindActivity    Kind = "activity"
	KindMood        Kind = "mood"
	KindGenericNote Kind = "generic_note"
)

// Kinds returns every kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindFeeding, KindSleep, KindDiaper, KindHealth, KindMedication,
		KindGrowth, KindMilestone, KindActivity, KindMood, KindGenericNote,
	}
}
