package accounting

// SignFor returns the balance effect (+1 or -1) of a transaction type on an
// account of the given kind. Assets grow on deposit; liabilities shrink on
// deposit because money received settles the debt.
func SignFor(kind AccountKind, txType TransactionType) int {
	increase := txType == TransactionDeposit
	if kind == KindLiability {
		increase = !increase
	}
	if increase {
		return 1
	}
	return -1
}
