package sqlinline

const QInsertFeedback = `--sql 761710da-c792-4afc-b9e8-ab9715289a61
INSERT INTO edit_feedback (edit_uuid, rating, feedback_text, user_ip, country)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (edit_uuid) DO NOTHING;
`

const QGetFeedback = `--sql 7737544b-35d3-4177-bf6f-2ec469eb5aa7
SELECT edit_uuid, rating, COALESCE(feedback_text, ''), COALESCE(user_ip, ''),
       COALESCE(country, ''), created_at
FROM edit_feedback
WHERE edit_uuid = $1;
`
