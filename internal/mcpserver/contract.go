package mcpserver

// NoteFormatContract describes how notes are structured so LLM consumers
// create and read them correctly.
const NoteFormatContract = `# vocanote Note Format Contract

A note is a title plus an ordered list of paragraphs. It may be filed in one folder.

## Body

- The body is plain text. Paragraphs are separated by one or more blank lines.
- Leading and trailing whitespace of each paragraph is dropped, and empty paragraphs disappear.
- Editing a body keeps paragraph identity by position: paragraph 1 stays paragraph 1
  even when its text changes. Inserting text in the middle therefore re-labels the
  paragraphs after it.
- Without a title, the first 30 characters of the text are used, followed by "..." when cut.

## Markdown rendering (read_note)

` + "```" + `markdown
---
title: Weekly standup
id: 4f6c1b1e-7d3a-4b8e-9a51-2f0c7d1e9b42
folder: Work
created: "2025-01-20T09:00:00Z"
updated: "2025-01-20T09:14:00Z"
---

Attendees: Alice, Bob.

Action items follow in the next paragraph.
` + "```" + `

## Export format (export_notes)

A JSON array. Each element has ` + "`" + `id` + "`" + `, ` + "`" + `title` + "`" + `,
` + "`" + `paragraphs` + "`" + ` (each ` + "`" + `{id, text, timestamp}` + "`" + `),
` + "`" + `folder_id` + "`" + ` (string or null), ` + "`" + `createdAt` + "`" + ` and
` + "`" + `updatedAt` + "`" + `. Timestamps are epoch milliseconds.

## Rules

1. Never invent ids. Use the ids returned by list_notes and list_folders.
2. Deleting requires ` + "`" + `confirm: true` + "`" + `. Deletion cannot be undone.
3. append_transcript adds to the note that is currently open, or starts a new one.
4. Encoding is UTF-8. Any language is fine in titles and bodies.
`
