package main

import (
	"fmt"

	"github.com/gatekeeperhq/gatekeeper/service/invite"
)

const titleGateActivity = "Gate activity"

// pushMessage derives the resident-facing message from an invite state
// change. Changes that carry no gate movement produce an empty message and
// are acked without a push.
func pushMessage(change *invite.StateChange) string {
	if change == nil || change.New == nil || change.Old == nil {
		return ""
	}

	var (
		old = change.Old
		new = change.New
	)

	if new.GroupCapable() {
		switch {
		case new.MembersCheckedIn > old.MembersCheckedIn:
			return fmt.Sprintf(
				"%s checked in, %d currently inside",
				new.GroupName,
				new.MembersCheckedIn,
			)
		case new.MembersCheckedIn < old.MembersCheckedIn:
			return fmt.Sprintf(
				"%s checked out, %d currently inside",
				new.GroupName,
				new.MembersCheckedIn,
			)
		}

		return ""
	}

	switch {
	case old.Status != invite.StatusCheckedIn &&
		new.Status == invite.StatusCheckedIn:
		return fmt.Sprintf("%s checked in", new.VisitorName)
	case old.Status != invite.StatusCheckedOut &&
		new.Status == invite.StatusCheckedOut:
		return fmt.Sprintf("%s checked out", new.VisitorName)
	}

	return ""
}
