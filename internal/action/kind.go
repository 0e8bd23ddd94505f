package action

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/remote"
	"github.com/openkcm/member-manager/internal/serviceerr"
)

// Kind names an action understood by the remote process. The value is sent
// verbatim as the Action tag.
type Kind string

const (
	GetMembers Kind = "GetMembers"
	AddMember  Kind = "AddMember"
)

const (
	TagAction      = "Action"
	TagMemberToAdd = "Member_To_Add"

	ParamMemberToAdd = "memberToAdd"
)

const statusSuccess = "success"

// param maps a request parameter onto the tag carrying it.
type param struct {
	key string
	tag string
}

type kindProtocol struct {
	params    []param
	adminOnly bool
	decode    func(*Outcome, remote.Result) *Failure
}

// kinds is the per-action protocol. The result shapes differ by kind and
// each kind keeps its own decoder.
var kinds = map[Kind]kindProtocol{
	GetMembers: {
		decode: decodeMembers,
	},
	AddMember: {
		params:    []param{{key: ParamMemberToAdd, tag: TagMemberToAdd}},
		adminOnly: true,
		decode:    decodeConfirmation,
	},
}

func (s kindProtocol) tags(kind Kind, params map[string]string) ([]remote.Tag, error) {
	tags := make([]remote.Tag, 0, len(s.params)+1)
	tags = append(tags, remote.Tag{Name: TagAction, Value: string(kind)})
	for _, p := range s.params {
		value := params[p.key]
		if value == "" {
			return nil, fmt.Errorf("%w: missing parameter %s", serviceerr.ErrInvalidRequest, p.key)
		}
		tags = append(tags, remote.Tag{Name: p.tag, Value: value})
	}

	return tags, nil
}

type membersEnvelope struct {
	Status  string              `json:"status"`
	Members []identity.Identity `json:"members"`
	Message string              `json:"message"`
}

func decodeMembers(out *Outcome, result remote.Result) *Failure {
	if len(result.Messages) == 0 {
		return &Failure{Reason: ReasonNoResponse, Err: serviceerr.ErrResolution}
	}

	var envelope membersEnvelope
	if err := json.Unmarshal([]byte(result.Messages[0].Data), &envelope); err != nil {
		return &Failure{
			Reason: "malformed members response",
			Err:    errors.Join(serviceerr.ErrDecode, err),
		}
	}

	switch envelope.Status {
	case statusSuccess:
		out.Members = envelope.Members
		if out.Members == nil {
			out.Members = []identity.Identity{}
		}
		return nil
	case "error":
		reason := envelope.Message
		if reason == "" {
			reason = ReasonRemoteError
		}
		return &Failure{Reason: reason, Err: serviceerr.ErrResolution}
	default:
		return &Failure{
			Reason: "malformed members response",
			Err:    fmt.Errorf("%w: status %q", serviceerr.ErrDecode, envelope.Status),
		}
	}
}

func decodeConfirmation(out *Outcome, result remote.Result) *Failure {
	if len(result.Messages) == 0 || result.Messages[0].Data == "" {
		return &Failure{Reason: ReasonNoResponse, Err: serviceerr.ErrResolution}
	}

	out.Text = result.Messages[0].Data

	return nil
}
