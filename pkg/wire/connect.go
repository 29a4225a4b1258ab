package wire

// Protocol constants.
const (
	// ProtocolVersion is the gateway protocol revision this client speaks.
	ProtocolVersion = 3

	// MethodConnect is the handshake request method.
	MethodConnect = "connect"

	// EventConnectChallenge is sent by the gateway right after the socket opens.
	EventConnectChallenge = "connect.challenge"

	// EventTick is the periodic liveness signal.
	EventTick = "tick"

	// StatusAccepted marks an interim acknowledgement of a two-phase request.
	StatusAccepted = "accepted"
)

// ChallengePayload is the payload of connect.challenge.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
	Ts    int64  `json:"ts,omitempty"`
}

// TickPayload is the payload of tick. The client only timestamps arrival.
type TickPayload struct {
	Ts int64 `json:"ts,omitempty"`
}

// ConnectParams are the params of the connect request.
type ConnectParams struct {
	MinProtocol int         `json:"minProtocol"`
	MaxProtocol int         `json:"maxProtocol"`
	Client      ClientInfo  `json:"client"`
	Caps        []string    `json:"caps"`
	Auth        *AuthParams `json:"auth,omitempty"`
	Role        string      `json:"role"`
	Scopes      []string    `json:"scopes"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"`
	InstanceID  string `json:"instanceId"`
}

// AuthParams carries the optional shared credential.
type AuthParams struct {
	Token string `json:"token,omitempty"`
}

// HelloPayload is the success payload of connect.
type HelloPayload struct {
	Type     string      `json:"type,omitempty"`
	Protocol int         `json:"protocol,omitempty"`
	Server   *ServerInfo `json:"server,omitempty"`
	Policy   *Policy     `json:"policy,omitempty"`
}

// ServerInfo describes the gateway process.
type ServerInfo struct {
	Version string `json:"version,omitempty"`
	Host    string `json:"host,omitempty"`
	ConnID  string `json:"connId,omitempty"`
}

// Policy is the session policy negotiated during connect.
type Policy struct {
	TickIntervalMs   int64 `json:"tickIntervalMs,omitempty"`
	MaxPayload       int64 `json:"maxPayload,omitempty"`
	MaxBufferedBytes int64 `json:"maxBufferedBytes,omitempty"`
}
