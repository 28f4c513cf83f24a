package apiapp

import (
	"net/http"
	"strings"
)

// Action selects the operation a request performs. GET and POST each have a
// default so older clients that omit the action keep working.
type Action int

const (
	ActionUnknown Action = iota
	ActionGetAll
	ActionGetEmployeeNames
	ActionLogin
	ActionSubmit
	ActionApprove
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionGetAll:
		return "getAll"
	case ActionGetEmployeeNames:
		return "getEmployeeNames"
	case ActionLogin:
		return "login"
	case ActionSubmit:
		return "submit"
	case ActionApprove:
		return "approve"
	case ActionUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// ParseAction resolves raw for the given HTTP method. Unrecognised values
// fall back to the method's default action.
func ParseAction(method, raw string) Action {
	raw = strings.TrimSpace(raw)
	if method == http.MethodGet || method == http.MethodHead {
		switch raw {
		case "getAll":
			return ActionGetAll
		default:
			return ActionGetEmployeeNames
		}
	}
	switch raw {
	case "login":
		return ActionLogin
	case "approve":
		return ActionApprove
	case "update":
		return ActionUpdate
	default:
		return ActionSubmit
	}
}

// requiresSession reports whether the action needs a live session token.
func (a Action) requiresSession() bool {
	switch a {
	case ActionGetAll, ActionSubmit, ActionApprove, ActionUpdate:
		return true
	default:
		return false
	}
}

// managerOnly reports whether the optional role gate applies.
func (a Action) managerOnly() bool {
	switch a {
	case ActionGetAll, ActionApprove, ActionUpdate:
		return true
	default:
		return false
	}
}
