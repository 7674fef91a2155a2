// Package errors provides standardized error handling patterns for the visual-script runtime.
//
// # Overview
//
// Errors are grouped into three classes: Transient (temporary, retryable, e.g. a NATS KV
// timeout), Invalid (bad input such as a link to a missing socket), and Fatal (configuration
// errors such as an unknown node type or a duplicate value type registration).
//
// Configuration errors are fatal at graph-build time. They are never recovered silently
// and carry diagnostic context, for example the list of registered node type names.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Store", "Get", "get from KV")
//	errors.WrapInvalid(err, "Graph", "Connect", "socket lookup")
//	errors.WrapFatal(err, "NodeRegistry", "Get", "node type lookup")
//
// # Integration with errors.As/Is
//
// Sentinel variables survive wrapping, so callers test for them with the standard library:
//
//	if errors.Is(err, errors.ErrUnknownNodeType) {
//	    // report the offending node type to the editor
//	}
package errors
