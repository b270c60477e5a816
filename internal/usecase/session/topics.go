package session

import "fmt"

// Topics is the bus topic set for one charger's booking namespace.
type Topics struct {
	RequestSession    string
	BookingResponse   string
	AuthorizeSession  string
	AuthorizeResponse string
	FinalizeSession   string
}

func NewTopics(homeID, chargerID string) Topics {
	base := fmt.Sprintf("ev/charger/%s/%s/booking", homeID, chargerID)
	return Topics{
		RequestSession:    base + "/request_session",
		BookingResponse:   base + "/response",
		AuthorizeSession:  base + "/authorize_session",
		AuthorizeResponse: base + "/authorize_session/response",
		FinalizeSession:   base + "/finalize_session",
	}
}

// Subscribed lists the topics the service consumes from the broker.
func (t Topics) Subscribed() []string {
	return []string{t.BookingResponse, t.AuthorizeResponse, t.FinalizeSession}
}
