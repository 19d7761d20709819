// Package validation provides pure validation functions for API handlers.
//
// All functions are pure (no I/O, no side effects).
//
// # Functions
//
//   - ValidateDeployRequest: Validate the fields of a deploy request
//   - ValidInstanceName: Check a name against the engine's container-name rules
//
// # Usage
//
//	if field, msg := validation.ValidateDeployRequest(req); field != "" {
//	    // Return 400 Bad Request with msg
//	}
package validation
