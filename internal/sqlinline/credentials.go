package sqlinline

const QSelectProviderCredential = `--sql 520002e6-d796-4701-9adc-64c4e32e8df8
select api_key
from provider_credentials
where provider = $1::text
limit 1;
`

const QUpsertProviderCredential = `--sql 8b72e45b-239d-4ca0-93e6-b3d454af74e8
insert into provider_credentials (provider, api_key, created_at, updated_at)
values ($1::text, $2::text, now(), now())
on conflict (provider) do update set
    api_key = excluded.api_key,
    updated_at = now();
`
