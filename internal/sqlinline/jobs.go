package sqlinline

const QInsertJob = `--sql 584bb663-e981-42ec-890d-2802df5aed70
insert into jobs (
    id, user_id, source_asset_key, reference_keys, settings,
    status, progress, current_stage, retry_count, error_message,
    result_key, created_at, started_at, completed_at
)
values (
    $1::uuid, $2::uuid, $3::text, $4::text[], $5::jsonb,
    $6::text, $7::int, $8::text, $9::int, $10::text,
    $11::text, $12::timestamptz, $13::timestamptz, $14::timestamptz
);
`

const QUpdateJobSnapshot = `--sql ca07c414-5e1d-4152-bc52-dfa097c3e280
update jobs set
    status = $2::text,
    progress = $3::int,
    current_stage = $4::text,
    retry_count = $5::int,
    error_message = $6::text,
    result_key = $7::text,
    started_at = $8::timestamptz,
    completed_at = $9::timestamptz
where id = $1::uuid;
`

const QSelectJobByID = `--sql 9384cc36-fbae-4773-9d68-ad5dc9ea0627
select
    id, user_id, source_asset_key, coalesce(reference_keys, '{}'), settings,
    status, progress, current_stage, retry_count, coalesce(error_message, ''),
    coalesce(result_key, ''), created_at, started_at, completed_at
from jobs
where id = $1::uuid
limit 1;
`

const QSelectJobsByUser = `--sql b60757b5-0d6b-4b76-9da7-709f15248fe2
select
    id, user_id, source_asset_key, coalesce(reference_keys, '{}'), settings,
    status, progress, current_stage, retry_count, coalesce(error_message, ''),
    coalesce(result_key, ''), created_at, started_at, completed_at
from jobs
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

const QSelectUnfinishedJobs = `--sql 6cd9de8c-1bde-46b7-9d1f-23b5fea1ebb4
select
    id, user_id, source_asset_key, coalesce(reference_keys, '{}'), settings,
    status, progress, current_stage, retry_count, coalesce(error_message, ''),
    coalesce(result_key, ''), created_at, started_at, completed_at
from jobs
where status in ('queued', 'processing')
order by created_at asc;
`
