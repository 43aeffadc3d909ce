package oauth

// EndSessionRequest contains the parsed params for /end-session.
type EndSessionRequest struct {
	IDTokenHint           string `json:"id_token_hint"`
	ClientID              string `json:"client_id"`
	PostLogoutRedirectURI string `json:"post_logout_redirect_uri"`
	State                 string `json:"state"`

	// Scope del logout: false = solo la sesión actual; true = además
	// cierra las demás sesiones broker del usuario y notifica a los
	// services visitados (front/back-channel).
	AllServices bool `json:"all_services"`
}

// LogoutNotification is the per-service outcome of the logout fan-out.
type LogoutNotification struct {
	ClientID string `json:"client_id"`
	Channel  string `json:"channel"` // frontchannel | backchannel
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`

	// Para frontchannel: URI que el UI debe cargar en un iframe.
	FrontchannelURI string `json:"frontchannel_uri,omitempty"`
}

// EndSessionResult is the outcome of ending a session.
type EndSessionResult struct {
	SessionEnded  bool                 `json:"session_ended"`
	Notifications []LogoutNotification `json:"notifications,omitempty"`
	RedirectTo    string               `json:"redirect_to,omitempty"`
	State         string               `json:"state,omitempty"`
}
