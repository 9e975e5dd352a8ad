package service

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
)

// workflowTransitions lists the moves the normal review flow makes. Administrators may still
// set any status; anything outside this table is only logged.
var workflowTransitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.StatusPending:     {models.StatusUnderReview, models.StatusApproved, models.StatusRejected},
	models.StatusUnderReview: {models.StatusApproved, models.StatusRejected},
}

// IsWorkflowTransition reports whether moving from one status to another follows the
// normal review flow. Re-setting the current status counts as a workflow move.
func IsWorkflowTransition(from, to models.ApplicationStatus) bool {
	if from == to {
		return true
	}
	for _, next := range workflowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// WinnerPicker returns an index in [0, n).
type WinnerPicker func(n int) (int, error)

// CryptoPicker draws uniformly using crypto/rand.
func CryptoPicker(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("cannot pick from %d candidates", n)
	}
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(idx.Int64()), nil
}

// NoWinnerMessage is reported when nobody is approved.
const NoWinnerMessage = "no winner"

// WinnerResult is the outcome of a draw. Winner is nil when Drawn is false.
type WinnerResult struct {
	Winner     *models.Application `json:"winner"`
	Drawn      bool                `json:"drawn"`
	Message    string              `json:"message"`
	Candidates int                 `json:"candidates"`
}
