package sqlinline

const QInsertRestorationJob = `--sql b8d94a61-38c2-490b-b93f-6dfed25bdc8a
insert into restoration_jobs (id, original_filename, restored_filename, status, created_at)
values ($1::uuid, $2, $3, $4, $5);
`

const QFinishRestorationJob = `--sql 32974eb2-45fe-4fd8-9b6c-3bef6ecb915a
update restoration_jobs
set status = $2,
    processing_time_ns = $3,
    error_message = $4,
    updated_at = now()
where id = $1::uuid
  and status = 'processing';
`

const QSelectRestorationJobStatus = `--sql af09c2b5-63e9-4fdc-a5cd-8b680ba8b795
select status
from restoration_jobs
where id = $1::uuid;
`

const QSelectRestorationJob = `--sql 1425f048-1f43-4f6c-911d-4a67ea3acb03
select id::text, original_filename, restored_filename, status, created_at, processing_time_ns, error_message
from restoration_jobs
where id = $1::uuid;
`

const QListRecentRestorationJobs = `--sql c4210fa3-56ff-48fb-a5fa-acbaf28ad14c
select id::text, original_filename, restored_filename, status, created_at, processing_time_ns, error_message
from restoration_jobs
order by created_at desc, id desc
limit $1;
`

const QListStaleRestorationJobs = `--sql faccf8b4-f54f-431b-b084-5f88e8447513
select id::text, original_filename, restored_filename, status, created_at, processing_time_ns, error_message
from restoration_jobs
where status = 'processing'
  and created_at < $1
order by created_at asc
limit $2;
`
