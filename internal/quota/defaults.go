package quota

import "time"

const periodLength = 30 * 24 * time.Hour

func defaultQuota() Quota {
	return Quota{
		Plan:     "Angel",
		Limit:    20,
		Used:     0,
		ResetsAt: time.Now().UTC().Add(periodLength),
	}
}
