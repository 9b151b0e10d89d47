// File: object/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package object declares the resource categories (object types), the
// operations each category supports, and the parameter and result contract
// of every (object type, operation) pair. Nothing here depends on a
// particular multiplexer.
//
// Object types form single-inheritance chains by explicit composition: a type
// names its base, and its operation list is the base's list followed by its
// own. Parameters are split into required fields and an embedded Options
// value of optional, named parameters built with functional options.
package object
