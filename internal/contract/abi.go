package contract

// BettingABI is the call surface of the deployed pari-mutuel pool.
const BettingABI = `[
  {"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"finalizePayout","stateMutability":"nonpayable","inputs":[
    {"name":"outcome","type":"string"},
    {"name":"winners","type":"address[]"},
    {"name":"amounts","type":"uint256[]"}
  ],"outputs":[]},
  {"type":"function","name":"balances","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balancesFinalized","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

const (
	methodDeposit           = "deposit"
	methodWithdraw          = "withdraw"
	methodFinalizePayout    = "finalizePayout"
	methodBalances          = "balances"
	methodBalancesFinalized = "balancesFinalized"
	methodOwner             = "owner"
)
