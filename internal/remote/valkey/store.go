package remotevalkey

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openkcm/member-manager/internal/remote"
)

type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	return keyspace{prefix: strings.TrimSuffix(prefix, ":")}
}

func (k keyspace) inbox(target remote.ProcessID) string {
	return fmt.Sprintf("%s:process:%s:inbox", k.prefix, target)
}

func (k keyspace) result(target remote.ProcessID, token remote.Token) string {
	return fmt.Sprintf("%s:result:%s:%s", k.prefix, target, token)
}

func encode(v any) (string, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling json: %w", err)
	}

	return string(bytes), nil
}

func decode(data string, into any) error {
	if err := json.Unmarshal([]byte(data), into); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}

	return nil
}
