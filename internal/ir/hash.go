package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRecord  = "swizzle/record/v1"
	DomainEvent   = "swizzle/event/v1"
	DomainProgram = "swizzle/program/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordID computes the stable identity of an interception record.
// Only the (class, original) pair participates: there is exactly one record
// per pair no matter which wrapper is requested.
func RecordID(class, original string) string {
	obj := IRObject{
		"class":    IRString(class),
		"original": IRString(original),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		// Strings always marshal.
		panic(fmt.Sprintf("RecordID: %v", err))
	}
	return hashWithDomain(DomainRecord, canonical)
}

// TraceEventID computes the identity of a trace event within a run.
func TraceEventID(runID string, seq int64, kind EventKind) string {
	obj := IRObject{
		"kind":   IRString(kind),
		"run_id": IRString(runID),
		"seq":    IRInt(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		panic(fmt.Sprintf("TraceEventID: %v", err))
	}
	return hashWithDomain(DomainEvent, canonical)
}

// ProgramHash fingerprints a compiled program so journal rows can be tied to
// the declarations that produced them.
func ProgramHash(p Program) (string, error) {
	classes := make(IRArray, 0, len(p.Classes))
	for _, c := range p.Classes {
		methods := make(IRArray, 0, len(c.Methods))
		for _, m := range c.Methods {
			steps := make(IRArray, 0, len(m.Body))
			for _, s := range m.Body {
				steps = append(steps, stepObject(s))
			}
			methods = append(methods, IRObject{
				"selector": IRString(m.Selector),
				"body":     steps,
			})
		}
		classes = append(classes, IRObject{
			"name":    IRString(c.Name),
			"super":   IRString(c.Super),
			"methods": methods,
		})
	}

	intercepts := make(IRArray, 0, len(p.Intercepts))
	for _, ic := range p.Intercepts {
		intercepts = append(intercepts, IRObject{
			"class":    IRString(ic.Class),
			"original": IRString(ic.Original),
			"wrapper":  IRString(ic.Wrapper),
		})
	}

	canonical, err := MarshalCanonical(IRObject{
		"classes":    classes,
		"intercepts": intercepts,
	})
	if err != nil {
		return "", fmt.Errorf("ProgramHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

func stepObject(s Step) IRObject {
	obj := IRObject{"op": IRString(s.Op)}
	if s.Selector != "" {
		obj["selector"] = IRString(s.Selector)
	}
	if s.Args != nil {
		obj["args"] = s.Args
	}
	if s.Value != nil {
		obj["value"] = s.Value
	}
	if s.Message != "" {
		obj["message"] = IRString(s.Message)
	}
	return obj
}
