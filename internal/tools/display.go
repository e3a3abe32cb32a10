// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import "encoding/json"

// displayParam names the argument shown when a call is echoed.
var displayParam = map[Capability]string{
	CapabilityShell:      "command",
	CapabilityReadFile:   "path",
	CapabilitySearchDocs: "query",
}

// DisplayArgs returns the human-relevant argument of a call: the command for
// bash, the path for read_file and the query for search_docs. Anything that
// does not decode falls back to the raw arguments.
func DisplayArgs(name, rawJSON string) string {
	c, err := ParseCapability(name)
	if err != nil {
		return rawJSON
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(rawJSON), &args); err != nil {
		return rawJSON
	}
	if s, ok := args[displayParam[c]].(string); ok {
		return s
	}
	return rawJSON
}

// DisplayParams is DisplayArgs for already decoded parameters.
func DisplayParams(name string, params map[string]interface{}) string {
	if c, err := ParseCapability(name); err == nil {
		if s, ok := params[displayParam[c]].(string); ok {
			return s
		}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(raw)
}
