package cooldown

import "github.com/redis/go-redis/v9"

// admitScript atomically decides whether a fingerprint may fire again.
// KEYS[1] = cooldown key, ARGV[1] = now (unix seconds), ARGV[2] = period (seconds).
// Returns 1 and records now with TTL=period when the key is absent or at least
// period seconds old, 0 otherwise.
const admitScript = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local period = tonumber(ARGV[2])

	local stored = redis.call('GET', key)
	if stored then
		local last = tonumber(stored)
		if last and (now - last) < period then
			return 0
		end
	end

	redis.call('SET', key, ARGV[1], 'EX', period)
	return 1
`

func newAdmitScript() *redis.Script {
	return redis.NewScript(admitScript)
}
