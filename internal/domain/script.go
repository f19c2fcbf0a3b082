package domain

import (
	"fmt"
	"strings"
)

// CursorPosition restores the caret location when a script is shown
// again in the UI.  Column may be negative to count from the line end.
type CursorPosition struct {
	Line   int
	Column int
}

// ScriptInfo is an immutable description of the script a shell starts
// with.
type ScriptInfo struct {
	Script   string
	Execute  bool // run immediately vs. load-only
	Database string
	Cursor   CursorPosition
	Title    string
	FilePath string // optional save path
}

// NewScriptInfo builds a ScriptInfo value.
func NewScriptInfo(script string, execute bool, database string, cursor CursorPosition, title, filePath string) ScriptInfo {
	return ScriptInfo{
		Script:   script,
		Execute:  execute,
		Database: database,
		Cursor:   cursor,
		Title:    title,
		FilePath: filePath,
	}
}

// CollectionQuery builds the default script for a named collection,
// e.g. CollectionQuery("users", "find({})") returns
// `db.getCollection('users').find({})`.
//
// db.getCollection() is used to avoid enumerating and special-casing
// "reserved" collection names.  Backslashes in the name are escaped so
// the generated script stays syntactically valid.
func CollectionQuery(collectionName, operation string) string {
	escaped := strings.ReplaceAll(collectionName, `\`, `\\`)
	return fmt.Sprintf("db.getCollection('%s').%s", escaped, operation)
}

// Database is a lightweight navigation value pairing a server with a
// database name.
type Database struct {
	Server *Server
	Name   string
}

// Collection is a lightweight navigation value pairing a database with
// a collection name.
type Collection struct {
	Database *Database
	Name     string
}
