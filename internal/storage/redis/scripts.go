package redis

const (
	// incrementUsageScript atomically adds seconds to one app's daily total
	// and records the day in the day index.
	incrementUsageScript = `
local usage_key = KEYS[1]     -- {prefix}:usage:{day}
local index_key = KEYS[2]     -- {prefix}:usage:days

local day = ARGV[1]
local app = ARGV[2]
local seconds = ARGV[3]

local total = redis.call('HINCRBYFLOAT', usage_key, app, seconds)
redis.call('SADD', index_key, day)

return total
`

	// clearUsageScript removes every daily hash listed in the day index and
	// the index itself.
	clearUsageScript = `
local index_key = KEYS[1]     -- {prefix}:usage:days
local prefix = ARGV[1]        -- {prefix}:usage:

local days = redis.call('SMEMBERS', index_key)
for _, day in ipairs(days) do
  redis.call('DEL', prefix .. day)
end
redis.call('DEL', index_key)

return #days
`
)
