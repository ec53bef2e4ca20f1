package notification

import "testing"

func TestValidate(t *testing.T) {
	for _, n := range []*Notification{
		{},
		{Message: "A visitor arrived"},
		{UserID: 123},
	} {
		if have, want := n.Validate(), ErrInvalidNotification; !IsInvalidNotification(have) {
			t.Errorf("have %v, want %v", have, want)
		}
	}

	n := &Notification{
		Message: "A visitor arrived",
		UserID:  123,
	}

	if err := n.Validate(); err != nil {
		t.Errorf("have %v, want nil", err)
	}
}
