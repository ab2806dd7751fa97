package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// printResult escribe v como JSON indentado (out=json) o como texto con text().
func printResult(w io.Writer, out string, v any, text func() string) error {
	if out == "json" {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	_, err := fmt.Fprintln(w, text())
	return err
}
