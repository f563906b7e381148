package sqlinline

// Queries carry a --sql marker on the first line so the SQLRunner can
// correlate statements in logs without echoing full SQL text.

const QInsertEdit = `--sql 71260f07-7f70-4e7a-b16b-601ff467a3e6
INSERT INTO edits (uuid, prompt, enhanced_prompt, original_image_url, status, processing_stage)
VALUES ($1, $2, $3, $4, 'pending', 'pending')
RETURNING id, created_at;
`

const QGetEditByID = `--sql c32c79bd-7a02-45f2-ba36-005b9597c9d6
SELECT id, uuid, prompt, COALESCE(enhanced_prompt, ''), original_image_url,
       COALESCE(edited_image_url, ''), status, processing_stage, created_at
FROM edits
WHERE id = $1;
`

const QGetEditByUUID = `--sql 7e585835-d01b-4314-ad84-755ece9f82bc
SELECT id, uuid, prompt, COALESCE(enhanced_prompt, ''), original_image_url,
       COALESCE(edited_image_url, ''), status, processing_stage, created_at
FROM edits
WHERE uuid = $1;
`

const QUpdateEditStatus = `--sql 4357224a-812c-4e02-a5d7-a61371da6eaa
UPDATE edits SET status = $2 WHERE id = $1;
`

const QUpdateEditStage = `--sql 116a4000-81ae-46ee-8bec-2354683ee65d
UPDATE edits SET processing_stage = $2 WHERE id = $1;
`

const QUpdateEditStatusAndStage = `--sql 5498d263-9564-46bf-afaa-3368c0eb6e81
UPDATE edits SET status = $2, processing_stage = $3 WHERE id = $1;
`

const QUpdateEditEnhancedPrompt = `--sql 758e8056-0808-4685-a6a2-644a2c4d7fc6
UPDATE edits SET enhanced_prompt = $2 WHERE id = $1;
`

const QCompleteEditWithResult = `--sql 2c469754-0f77-45a0-a53c-62607e20d0c1
UPDATE edits
SET status = 'completed', edited_image_url = $2, processing_stage = 'completed'
WHERE id = $1;
`

const QInsertChainLink = `--sql 9ec82628-2ff2-4830-b7c6-c8e2e7819c91
INSERT INTO edit_chains (edit_uuid, parent_edit_uuid, chain_position)
VALUES ($1, $2, $3);
`

const QGetChainPosition = `--sql f6570a27-c064-44d1-b274-d408ded91bcd
SELECT COALESCE(ec.chain_position, 1)
FROM edits e
LEFT JOIN edit_chains ec ON ec.edit_uuid = e.uuid
WHERE e.uuid = $1;
`

// QChainHistory resolves the full lineage containing the given edit, root
// first. The level counter caps recursion at 10 hops as a runaway guard;
// the configured maximum chain length is enforced at submission time.
const QChainHistory = `--sql 789f06f1-20d7-4c8e-92cb-38d65f92e2b2
WITH RECURSIVE ancestors AS (
    SELECT e.id, e.uuid, e.prompt, COALESCE(e.enhanced_prompt, '') AS enhanced_prompt,
           e.original_image_url, COALESCE(e.edited_image_url, '') AS edited_image_url,
           e.status, e.processing_stage, e.created_at,
           COALESCE(ec.chain_position, 1) AS chain_position,
           ec.parent_edit_uuid,
           1 AS level
    FROM edits e
    LEFT JOIN edit_chains ec ON ec.edit_uuid = e.uuid
    WHERE e.uuid = $1

    UNION ALL

    SELECT e.id, e.uuid, e.prompt, COALESCE(e.enhanced_prompt, ''),
           e.original_image_url, COALESCE(e.edited_image_url, ''),
           e.status, e.processing_stage, e.created_at,
           COALESCE(ec.chain_position, 1),
           ec.parent_edit_uuid,
           a.level + 1
    FROM edits e
    LEFT JOIN edit_chains ec ON ec.edit_uuid = e.uuid
    JOIN ancestors a ON e.uuid = a.parent_edit_uuid
    WHERE a.level < 10
)
SELECT id, uuid, prompt, enhanced_prompt, original_image_url, edited_image_url,
       status, processing_stage, created_at, chain_position
FROM ancestors
ORDER BY chain_position;
`
