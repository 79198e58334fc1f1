// ABOUTME: Schema version registry: decoders for every on-disk version and the encoder
// ABOUTME: Each version arm upgrades additively into the current State shape

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// Version is the persisted schema version tag.
type Version int

// Known schema versions.
const (
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3

	CurrentVersion = V3
)

// ErrUnsupportedVersion is returned when the version tag is not known to this build.
var ErrUnsupportedVersion = errors.New("unsupported schema version")

// ErrMalformed is returned when the bytes are not a versioned state document.
var ErrMalformed = errors.New("malformed state document")

type decoder func(raw []byte) (*State, error)

var decoders = map[Version]decoder{
	V1: decodeAs[documentV1],
	V2: decodeAs[documentV2],
	V3: decodeAs[documentV3],
}

// upgrader is implemented by every historical document shape.
type upgrader interface {
	upgrade() *State
}

type documentV1 struct {
	Version  Version         `json:"version"`
	Channels []ChannelID     `json:"channels"`
	Users    map[UserID]User `json:"users"`
}

func (d documentV1) upgrade() *State {
	return &State{
		Channels: d.Channels,
		Users:    d.Users,
	}
}

type documentV2 struct {
	documentV1
	DecrementChannels []ChannelID `json:"decrementChannels"`
	ShowerChannels    []ChannelID `json:"showerChannels"`
}

func (d documentV2) upgrade() *State {
	s := d.documentV1.upgrade()
	s.DecrementChannels = d.DecrementChannels
	if len(s.DecrementChannels) == 0 {
		s.DecrementChannels = d.ShowerChannels
	}
	return s
}

type documentV3 struct {
	documentV2
	Passwords []PasswordEntry `json:"passwords"`
}

func (d documentV3) upgrade() *State {
	s := d.documentV2.upgrade()
	s.Passwords = d.Passwords
	return s
}

// decodeAs unmarshals raw into the document shape D and upgrades it.
func decodeAs[D upgrader](raw []byte) (*State, error) {
	var doc D
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc.upgrade(), nil
}

// PeekVersion reads the version tag without decoding the rest of the document.
func PeekVersion(raw []byte) (Version, error) {
	if !gjson.ValidBytes(raw) {
		return 0, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return 0, fmt.Errorf("%w: document is not an object", ErrMalformed)
	}
	tag := root.Get("version")
	if tag.Type != gjson.Number {
		return 0, fmt.Errorf("%w: missing numeric version tag", ErrMalformed)
	}
	if f := tag.Float(); f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: version tag %v is not an integer", ErrMalformed, f)
	}
	return Version(tag.Int()), nil
}

// Decode parses a state document of any known version into the current shape.
func Decode(raw []byte) (*State, error) {
	version, err := PeekVersion(raw)
	if err != nil {
		return nil, err
	}

	decode, ok := decoders[version]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	state, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: version %d: %v", ErrMalformed, version, err)
	}
	state.normalize()
	return state, nil
}

// document is the encoded form: the current state tagged with CurrentVersion.
type document struct {
	Version Version `json:"version"`
	*State
}

// Encode serializes s as a CurrentVersion document.
func Encode(s *State) ([]byte, error) {
	data, err := json.Marshal(document{Version: CurrentVersion, State: s.Clone()})
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return data, nil
}
