// internal/protocol/envelope.go
package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame for every message: a type tag, an optional
// request id (binding acks/rejects/responses to the originating request),
// and the message payload.
type Envelope struct {
	Type  string          `json:"type"`
	ReqID uint64          `json:"req_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type typed interface {
	MsgType() string
}

func encode(reqID uint64, msg typed) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.MsgType(), err)
	}
	return json.Marshal(Envelope{Type: msg.MsgType(), ReqID: reqID, Data: data})
}

func decodeInto[T typed](raw []byte, registry map[string]func() T) (uint64, T, error) {
	var zero T
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, zero, fmt.Errorf("unmarshal envelope: %w", err)
	}
	ctor, ok := registry[env.Type]
	if !ok {
		return 0, zero, fmt.Errorf("unknown message type %q", env.Type)
	}
	msg := ctor()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return 0, zero, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
		}
	}
	return env.ReqID, msg, nil
}

var userToHostRegistry = map[string]func() UserToHost{
	MakeLobby{}.MsgType():        func() UserToHost { return &MakeLobby{} },
	JoinLobby{}.MsgType():        func() UserToHost { return &JoinLobby{} },
	LeaveLobby{}.MsgType():       func() UserToHost { return &LeaveLobby{} },
	LaunchLobbyGame{}.MsgType():  func() UserToHost { return &LaunchLobbyGame{} },
	GetConnectToken{}.MsgType():  func() UserToHost { return &GetConnectToken{} },
	LobbySearch{}.MsgType():      func() UserToHost { return &LobbySearch{} },
	AckPendingLobby{}.MsgType():  func() UserToHost { return &AckPendingLobby{} },
	NackPendingLobby{}.MsgType(): func() UserToHost { return &NackPendingLobby{} },
	ResetLobby{}.MsgType():       func() UserToHost { return &ResetLobby{} },
}

var hostToUserRegistry = map[string]func() HostToUser{
	LobbyJoin{}.MsgType():              func() HostToUser { return &LobbyJoin{} },
	LobbySearchResult{}.MsgType():      func() HostToUser { return &LobbySearchResult{} },
	LobbyState{}.MsgType():             func() HostToUser { return &LobbyState{} },
	LobbyLeave{}.MsgType():             func() HostToUser { return &LobbyLeave{} },
	PendingLobbyAckRequest{}.MsgType(): func() HostToUser { return &PendingLobbyAckRequest{} },
	PendingLobbyAckFail{}.MsgType():    func() HostToUser { return &PendingLobbyAckFail{} },
	GameStart{}.MsgType():              func() HostToUser { return &GameStart{} },
	GameOver{}.MsgType():               func() HostToUser { return &GameOver{} },
	GameAborted{}.MsgType():            func() HostToUser { return &GameAborted{} },
	ConnectToken{}.MsgType():           func() HostToUser { return &ConnectToken{} },
	Ack{}.MsgType():                    func() HostToUser { return &Ack{} },
	Reject{}.MsgType():                 func() HostToUser { return &Reject{} },
}

var hostToHubRegistry = map[string]func() HostToHub{
	StartGame{}.MsgType(): func() HostToHub { return &StartGame{} },
	AbortGame{}.MsgType(): func() HostToHub { return &AbortGame{} },
}

var hubToHostRegistry = map[string]func() HubToHost{
	Capacity{}.MsgType():     func() HubToHost { return &Capacity{} },
	HubGameStart{}.MsgType(): func() HubToHost { return &HubGameStart{} },
	HubGameOver{}.MsgType():  func() HubToHost { return &HubGameOver{} },
	HubAbort{}.MsgType():     func() HubToHost { return &HubAbort{} },
}

var instanceCommandRegistry = map[string]func() GameInstanceCommand{
	CommandAbort{}.MsgType(): func() GameInstanceCommand { return &CommandAbort{} },
}

var instanceReportRegistry = map[string]func() GameInstanceReport{
	ReportGameStart{}.MsgType(): func() GameInstanceReport { return &ReportGameStart{} },
	ReportGameOver{}.MsgType():  func() GameInstanceReport { return &ReportGameOver{} },
	ReportAborted{}.MsgType():   func() GameInstanceReport { return &ReportAborted{} },
}

// EncodeUserToHost frames a user request with its request id.
func EncodeUserToHost(reqID uint64, msg UserToHost) ([]byte, error) { return encode(reqID, msg) }

// DecodeUserToHost unframes a user request.
func DecodeUserToHost(raw []byte) (uint64, UserToHost, error) {
	return decodeInto(raw, userToHostRegistry)
}

// EncodeHostToUser frames a host message; reqID is zero for unsolicited
// messages.
func EncodeHostToUser(reqID uint64, msg HostToUser) ([]byte, error) { return encode(reqID, msg) }

// DecodeHostToUser unframes a host message on the client side.
func DecodeHostToUser(raw []byte) (uint64, HostToUser, error) {
	return decodeInto(raw, hostToUserRegistry)
}

// EncodeHostToHub frames a host-to-hub message.
func EncodeHostToHub(msg HostToHub) ([]byte, error) { return encode(0, msg) }

// DecodeHostToHub unframes a host-to-hub message.
func DecodeHostToHub(raw []byte) (HostToHub, error) {
	_, msg, err := decodeInto(raw, hostToHubRegistry)
	return msg, err
}

// EncodeHubToHost frames a hub-to-host message.
func EncodeHubToHost(msg HubToHost) ([]byte, error) { return encode(0, msg) }

// DecodeHubToHost unframes a hub-to-host message.
func DecodeHubToHost(raw []byte) (HubToHost, error) {
	_, msg, err := decodeInto(raw, hubToHostRegistry)
	return msg, err
}

// EncodeInstanceCommand frames a hub-to-instance command (one JSON line).
func EncodeInstanceCommand(msg GameInstanceCommand) ([]byte, error) { return encode(0, msg) }

// DecodeInstanceCommand unframes a hub-to-instance command.
func DecodeInstanceCommand(raw []byte) (GameInstanceCommand, error) {
	_, msg, err := decodeInto(raw, instanceCommandRegistry)
	return msg, err
}

// EncodeInstanceReport frames an instance-to-hub report (one JSON line).
func EncodeInstanceReport(msg GameInstanceReport) ([]byte, error) { return encode(0, msg) }

// DecodeInstanceReport unframes an instance-to-hub report.
func DecodeInstanceReport(raw []byte) (GameInstanceReport, error) {
	_, msg, err := decodeInto(raw, instanceReportRegistry)
	return msg, err
}
