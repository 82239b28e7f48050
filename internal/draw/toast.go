package draw

import "time"

// toastLifetime bounds how long a toast stays visible without interaction.
// Independent of the offer's server-side lifetime.
const toastLifetime = 30 * time.Second

// Toast is the transient UI notice for one incoming offer. Dismissing it
// only hides the notice; the offer itself stays actionable from the dialog.
type Toast struct {
	OfferID   string
	Text      string
	CreatedAt time.Time

	dismissed bool
}

func (t Toast) visibleAt(now time.Time) bool {
	if t.dismissed {
		return false
	}
	return now.Before(t.CreatedAt.Add(toastLifetime))
}
