package mcpserver

// ClassificationGuide describes the two zone lists and the results an LLM
// consumer should expect from the reclassify_zone tool.
const ClassificationGuide = `# Yard Move Classification Guide

Every geofence zone is in exactly one of two lists.

| List     | Aliases                 | Meaning                                        |
|----------|-------------------------|------------------------------------------------|
| plain    | zones                   | The zone does not carry the Yard Move zone type |
| tagged   | yardmove, yard-move     | The zone carries the Yard Move zone type        |

The Yard Move zone type is a single record named "Yard Move". It is created
on first use when the fleet database has none.

## Moving a zone

Call ` + "`" + `reclassify_zone` + "`" + ` with a zone id and the target list. The remote record
is read again, its zone types are changed and written back. The local lists
change only when the write succeeded.

| Result               | Meaning                                                     |
|----------------------|-------------------------------------------------------------|
| moved                | The zone is now in the target list                          |
| unchanged            | The zone was already in the target list; nothing was sent   |
| already_classified   | The remote record already carries the tag; reload           |
| not_found            | The zone id is unknown locally or was deleted remotely      |
| conflict             | The record changed between read and write; retry            |
| in_flight            | A move for this zone is still running                       |
| gateway              | The fleet API failed; nothing changed                       |

## Searching

` + "`" + `search_zones` + "`" + ` filters one list by a case-insensitive substring of the zone
name or id. An empty query returns the whole list. The query is kept until
it is replaced.
`
