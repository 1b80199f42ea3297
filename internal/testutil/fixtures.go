package testutil

// AMPSource is the two-process Agreed Meeting Point protocol: a process that
// hears a differing value moves to the meeting point y.
const AMPSource = `PROTOCOL AMP
PROCESSES: 2
STATE: x ∈ {0, 1}
INITIAL VALUES: [0, 1]
PARAMETERS: y = 0.5
CHANNEL: stochastic
UPDATE RULE:
  EACH ROUND: if received_diff then x ← y else x ← x
METRICS: discrepancy, consensus
`

// FVSource is the two-process Flip Value protocol: a process adopts any
// differing value it hears.
const FVSource = `PROTOCOL FV
PROCESSES: 2
STATE: x ∈ {0, 1}
INITIAL VALUES: [0, 1]
CHANNEL: stochastic
UPDATE RULE:
  EACH ROUND: x ← received_other(x)
METRICS: discrepancy, consensus
`

// AveragingSource averages the inbox together with the process's own value.
const AveragingSource = `PROTOCOL Averaging
PROCESSES: 3
STATE: x ∈ [0, 1]
INITIAL VALUES: [0, 0.5, 1]
CHANNEL: stochastic
UPDATE RULE:
  EACH ROUND: x ← avg(inbox ∪ {x})
`

// LeaderSource copies the leader's value whenever it arrives and settles on
// the midpoint of what it holds after the last round.
const LeaderSource = `PROTOCOL Leader
PROCESSES: 4
STATE: xᵢ ∈ [0, 1]
INITIAL: x_i = (i - 1) / (n - 1)
CHANNEL: stochastic
ROLES: leader = 1
UPDATE RULE:
  EACH ROUND:
    if self is leader then
      x ← x
    else if received_from(1) then
      x ← value_from(1)
    end
  END: midpoint
`

// GuaranteedAMPSource is AMP with full delivery required in every round.
const GuaranteedAMPSource = `PROTOCOL AMPGuaranteed
PROCESSES: 2
STATE: x ∈ {0, 1}
INITIAL VALUES: [0, 1]
PARAMETERS: y = 0.5
CHANNEL: stochastic
MODEL:
  guaranteed(min_messages=2, scope=per_round)
UPDATE RULE:
  EACH ROUND: if received_diff then x ← y else x ← x
`
