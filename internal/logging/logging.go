// Package logging adapts the zap field-grouping idiom the teacher uses
// in internal/logutil into the structured context the lineage analyzer
// attaches to resolution failures and bind-step tracing.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context groups a resolution attempt's kind, the name it searched for,
// and any candidates it found under a single "resolution" object field,
// the same grouping trick as the teacher's logutil.Values.
func Context(kind string, sought string, candidates ...string) zap.Field {
	return zap.Object("resolution", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("kind", kind)
		if sought != "" {
			enc.AddString("sought", sought)
		}
		if len(candidates) > 0 {
			return enc.AddArray("candidates", stringArray(candidates))
		}
		return nil
	}))
}

type stringArray []string

func (a stringArray) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, s := range a {
		enc.AppendString(s)
	}
	return nil
}
