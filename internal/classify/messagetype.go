package classify

import (
	"strings"

	"github.com/af-corp/concierge/internal/types"
)

var complaintMarkers = []string{
	"complain", "complaint", "dirty", "filthy", "rude", "terrible", "worst",
	"disgusting", "disappointed", "unacceptable", "refund", "smelly",
	"kotor", "teruk", "kecewa", "投诉", "脏", "太差",
}

var problemMarkers = []string{
	"not working", "doesn't work", "doesnt work", "broken", "can't", "cannot",
	"no hot water", "leak", "stuck", "locked out", "no power", "no wifi",
	"rosak", "tak boleh", "tidak boleh", "坏了", "不能",
}

// DetectMessageType is the keyword fallback used when a model did not say
// whether the guest is complaining or reporting a problem.
func DetectMessageType(text string) types.MessageType {
	lower := strings.ToLower(text)
	for _, m := range complaintMarkers {
		if strings.Contains(lower, m) {
			return types.MessageComplaint
		}
	}
	for _, m := range problemMarkers {
		if strings.Contains(lower, m) {
			return types.MessageProblem
		}
	}
	return types.MessageInfo
}
