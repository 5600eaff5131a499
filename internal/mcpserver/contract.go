package mcpserver

// ImportFormatContract describes the JSON file list accepted by the
// import_list tool and the layout of the merged output.
const ImportFormatContract = `# collate import list format

An import list is a UTF-8 JSON document with one top-level object:

` + "```" + `json
{
  "files_to_merge": [
    "src/main.go",
    "/abs/path/README.md",
    "../shared/notes.txt"
  ]
}
` + "```" + `

## Rules

1. The root MUST be an object holding a ` + "`" + `files_to_merge` + "`" + ` array.
2. Entries MUST be strings. Other values are skipped with a diagnostic.
3. Relative entries resolve against the directory holding the JSON file.
4. Entries naming a missing path or a directory are skipped with a diagnostic.
5. Every imported file starts checked, in list order.

## Merged output

A merge writes ` + "`" + `collated_files_<YYYY-MM-DD_HH-MM-SS>.txt` + "`" + ` into the output
directory. Each checked file contributes a banner followed by its raw bytes:

` + "```" + `text

========== [main.go] ==========

package main
` + "```" + `

Files appear in tree order: depth-first, folders before files, names
compared case-insensitively.
`
