package redis

const (
	// createRecordScript stores a record only if its date key is still
	// free, and maintains the date index in the same step. Returns 1 when
	// this call created the record, 0 when another writer got there first.
	createRecordScript = `
local record_key = KEYS[1]   -- hubwatch:record:{date}
local index_key = KEYS[2]    -- hubwatch:records

local date = ARGV[1]
local payload = ARGV[2]

if redis.call('EXISTS', record_key) == 1 then
  return 0
end

redis.call('SET', record_key, payload)
redis.call('SADD', index_key, date)
return 1
`

	// upsertRecordScript replaces the record for a date and keeps the date
	// index consistent.
	upsertRecordScript = `
local record_key = KEYS[1]   -- hubwatch:record:{date}
local index_key = KEYS[2]    -- hubwatch:records

local date = ARGV[1]
local payload = ARGV[2]

redis.call('SET', record_key, payload)
redis.call('SADD', index_key, date)
return 'OK'
`
)
