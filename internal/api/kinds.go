package api

import "postbot/internal/trigger"

var kindLabels = map[trigger.Kind]string{
	trigger.KindDateTime:  "Post at a given date and time",
	trigger.KindDaysLater: "Post N days later at a given time",
	trigger.KindCron:      "Post on a cron schedule",
}

// KindLabel returns the display label for kind, or the kind itself when none
// is known.
func KindLabel(kind trigger.Kind) string {
	if l, ok := kindLabels[kind]; ok {
		return l
	}
	return string(kind)
}
