package mcpserver

// TaskFormatContract describes the task document format that LLM consumers
// should follow when creating or editing tasks.
const TaskFormatContract = `# Raido Task Format Contract

Every task is one Markdown file at ` + "`" + `<team>/tasks/<team>-<n>.md` + "`" + `.
The id (` + "`" + `eng-3` + "`" + `) comes from the file name and is never stored inside the file.

## Structure

` + "```" + `markdown
---
title: Fix login redirect          # REQUIRED
status: In Progress                # OPTIONAL, one of the statuses below
assignee: ada@example.com          # OPTIONAL, an email
labels:                            # OPTIONAL, non-empty strings
  - A-auth
props:                             # OPTIONAL, free-form map
  estimate: 3
---

Description in standard Markdown.
` + "```" + `

## Rules

1. **Front matter is mandatory.** The ` + "`" + `---` + "`" + ` fences must be the first line of
   the file and the closing fence must be a whole line.
2. **` + "`" + `title` + "`" + ` is required.**
3. **Statuses** are ` + "`" + `Todo` + "`" + `, ` + "`" + `In Progress` + "`" + `, ` + "`" + `Done` + "`" + `, ` + "`" + `Canceled` + "`" + `, ` + "`" + `Duplicate` + "`" + `.
   Tools accept them case-insensitively (` + "`" + `in-progress` + "`" + ` works). A missing status counts as open.
4. **Status groups** used for filtering: ` + "`" + `open` + "`" + ` (none, Todo, In Progress),
   ` + "`" + `in-progress` + "`" + `, ` + "`" + `closed` + "`" + ` (Done, Canceled, Duplicate).
5. **Teams** are lowercase letters and digits starting with a letter.
6. **Assignee** ` + "`" + `me` + "`" + ` resolves to the current identity; an empty assignee clears it.
7. Every create or edit is recorded as a signed change. Edits that change nothing record nothing.

## Tools

- ` + "`" + `create_task` + "`" + `: pick the next number for the team and record the task.
- ` + "`" + `edit_task` + "`" + `: change title, status, assignee, description or labels.
- ` + "`" + `list_tasks` + "`" + `: query the index by team, assignee and status group.
- ` + "`" + `show_task` + "`" + `, ` + "`" + `task_history` + "`" + `: read a task and the changes touching it.
`
