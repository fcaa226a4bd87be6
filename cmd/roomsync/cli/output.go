// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"io"
	"reflect"

	"github.com/spf13/pflag"
)

// OutputFlags is embedded by command parameter structs that can print
// JSON instead of a rendered view.
type OutputFlags struct {
	JSON    bool
	Verbose bool
}

// AddFlags registers --json and --verbose.
func (o *OutputFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&o.JSON, "json", false, "print JSON instead of a table")
	flagSet.BoolVarP(&o.Verbose, "verbose", "v", false, "log at debug level")
}

// EmitJSON writes result to w when --json is set and reports whether
// it did. Nil slices are written as [].
func (o *OutputFlags) EmitJSON(w io.Writer, result any) (bool, error) {
	if !o.JSON {
		return false, nil
	}
	return true, WriteJSON(w, result)
}

// WriteJSON writes value as indented JSON.
func WriteJSON(w io.Writer, value any) error {
	if v := reflect.ValueOf(value); v.Kind() == reflect.Slice && v.IsNil() {
		value = reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
