package sqlinline

const QSelectUserByID = `--sql be7052c0-68a6-431b-9264-029a95ceb553
select
    id, email, coalesce(name, ''), plan,
    credits_used, total_videos, coalesce(preferences, '{}'::jsonb),
    created_at, updated_at
from users
where id = $1::uuid
limit 1;
`

const QConsumeCredit = `--sql 0d2b5592-de8e-42de-8843-440b0928fc29
update users set
    credits_used = credits_used + (case when plan = 'free' then 1 else 0 end),
    total_videos = total_videos + 1,
    updated_at = now()
where id = $1::uuid;
`

const QResetWeeklyCredits = `--sql 529a803b-a064-4131-ac9a-77d52da1beb6
update users set
    credits_used = 0,
    updated_at = now()
where id = $1::uuid;
`

const QSetUserPlan = `--sql 783c3ac1-8940-4a39-9dd3-78ac2720e23b
update users set
    plan = $2::text,
    updated_at = now()
where id = $1::uuid;
`

const QSelectUserByEmail = `--sql 28677446-0cff-4ae3-b72e-aef2d24ebe10
select
    id, email, coalesce(name, ''), plan,
    credits_used, total_videos, coalesce(preferences, '{}'::jsonb),
    created_at, updated_at
from users
where email = $1::text
limit 1;
`
