package workflow

// ResolveInput builds a step's effective input from its input spec and the
// execution context. The resolver is total: a fromStep reference to a step
// that is absent, skipped, or failed contributes nothing and raises no
// error.
//
// Precedence on key collision, lowest to highest: static values, the
// fromContext copy, the fromStep merge, then the well-known identity
// fields (userId, sessionId, organizationId).
func ResolveInput(step *Step, exec *Execution) map[string]any {
	input := copyMapDeep(step.Input.Static)
	if input == nil {
		input = make(map[string]any)
	}

	if key := step.Input.FromContext; key != "" {
		if val, ok := exec.Input[key]; ok {
			input[key] = copyValueDeep(val)
		}
	}

	if ref := step.Input.FromStep; ref != "" {
		if output, ok := exec.stepOutput(ref); ok {
			switch out := output.(type) {
			case map[string]any:
				for k, v := range out {
					input[k] = copyValueDeep(v)
				}
			default:
				input[ref] = copyValueDeep(output)
			}
		}
	}

	if exec.UserID != "" {
		input[FieldUserID] = exec.UserID
	}
	if exec.SessionID != "" {
		input[FieldSessionID] = exec.SessionID
	}
	if exec.OrganizationID != "" {
		input[FieldOrganizationID] = exec.OrganizationID
	}

	return input
}
