package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// DomainFunction is the hash domain for reactive function node ids.
// Version suffix enables future algorithm migration.
const DomainFunction = "rxmodel/function/v1"

// FunctionNodePrefix starts every function node id. Property node ids always
// start with a decimal model id, so the two shapes never collide.
const FunctionNodePrefix = "fn:"

// PropertyNode returns the graph node id of a model property.
//
// Format: "<modelID>.<name>", e.g. "3.foo". Model ids contain no dots, so the
// first dot always separates the model from the name and names may contain
// dots of their own.
func PropertyNode(modelID int64, name string) string {
	return strconv.FormatInt(modelID, 10) + "." + name
}

// ParsePropertyNode is the inverse of PropertyNode.
func ParsePropertyNode(id string) (modelID int64, name string, err error) {
	prefix, rest, ok := strings.Cut(id, ".")
	if !ok || prefix == "" {
		return 0, "", fmt.Errorf("not a property node: %q", id)
	}
	modelID, err = strconv.ParseInt(prefix, 10, 64)
	if err != nil || modelID < 0 {
		return 0, "", fmt.Errorf("not a property node: %q", id)
	}
	return modelID, rest, nil
}

// IsFunctionNode reports whether id was produced by FunctionNode.
func IsFunctionNode(id string) bool {
	return strings.HasPrefix(id, FunctionNodePrefix)
}

// FunctionNode computes the content-addressed id of a reactive function.
//
// The id is a pure function of the owning model, the callback identity, the
// ordered input names and the output name (empty for side-effecting
// functions). Declaring an identical binding twice yields the same node.
func FunctionNode(modelID int64, callback string, inputs []string, output string) string {
	in := make([]any, len(inputs))
	for i, name := range inputs {
		in[i] = name
	}
	obj := map[string]any{
		"model":    modelID,
		"callback": callback,
		"inputs":   in,
		"output":   output,
	}
	// Only strings, ints and string arrays are involved, which always marshal.
	canonical := MustMarshalCanonical(obj)
	return FunctionNodePrefix + hashWithDomain(DomainFunction, canonical)
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
