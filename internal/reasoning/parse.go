package reasoning

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/HendryAvila/sage/internal/router"
)

// fencePattern matches the first fenced block tagged json or untagged.
var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\r?\n(.*?)```")

var errUnparseable = errors.New("reasoning: no usable fenced block")

type plan struct {
	Answer  string `json:"answer"`
	Actions []struct {
		Tool   string         `json:"tool"`
		Params map[string]any `json:"params"`
		Reason string         `json:"reason"`
	} `json:"actions"`
}

// parseCompletion extracts answer and actions from a model completion.
// Anything without a fenced block holding a non-empty answer is unparseable.
func parseCompletion(text string) (string, []router.ProposedAction, error) {
	m := fencePattern.FindStringSubmatch(text)
	if m == nil {
		return "", nil, errUnparseable
	}
	var p plan
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &p); err != nil {
		return "", nil, errUnparseable
	}
	answer := strings.TrimSpace(p.Answer)
	if answer == "" {
		return "", nil, errUnparseable
	}

	var actions []router.ProposedAction
	for _, a := range p.Actions {
		tool := strings.TrimSpace(a.Tool)
		if tool == "" {
			continue
		}
		actions = append(actions, router.ProposedAction{Tool: tool, Params: a.Params, Reason: a.Reason})
		if len(actions) == maxModelActions {
			break
		}
	}
	return answer, actions, nil
}
