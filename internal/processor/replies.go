package processor

const (
	textAskQuantity     = "How many tickets would you like? You can buy between 1 and 100."
	textAskPoolQuantity = "How many tickets would you like to put into this chat's pool? You can buy between 1 and 100."
	textAskPurchaseType = "Would you like %s for yourself (solo) or in this chat's pool?"
	textConfirm         = "%s for %s USDC.\nReply yes to confirm or no to cancel."
	textPurchased       = "Here is your transaction for %s (%s USDC). Sign it in your wallet to complete the purchase."
	textPoolPurchased   = "Here is your transaction for %s in the pool (%s USDC). Sign it in your wallet to complete the purchase.\nYou now hold %d of %d pool tickets (%.2f%%)."
	textPoolNotice      = "Pool tickets won't appear in your personal stats until winnings are distributed."
	textCancelled       = "Cancelled. Nothing was purchased."
	textNothingPending  = "There is nothing waiting for confirmation."
	textPurchaseFailed  = "Sorry, I couldn't prepare that transaction. Nothing was purchased, please try again."
	textNoPoolContract  = "This chat doesn't have a pool set up yet, so I can't buy pool tickets here."
	textNoWallet        = "I couldn't find a wallet linked to your account. Link a wallet and try again."

	textWalletLookupFailed = "I couldn't look up your wallet right now. Please try again in a moment."
	textLedgerUnavailable  = "I couldn't reach the lottery right now. Please try again in a moment."

	textStats          = "You hold %s in the current round (%.2f%% odds) with %s USDC pending winnings."
	textNoTickets      = "You don't have any tickets in the current round yet."
	textNoPool         = "This chat doesn't have a pool yet. Say \"join the pool\" to start one."
	textPoolStatus     = "Pool: %d tickets from %d members, %s USDC contributed."
	textPoolShare      = "Your share: %d of %d tickets (%.2f%%)."
	textPoolPayout     = "If the pending winnings were paid out now you would receive %s USDC."
	textNothingToClaim = "You have no winnings to claim right now."
	textClaim          = "Here is your claim transaction for %s USDC. Sign it in your wallet to collect."

	textHelp = "I can buy lottery tickets for you or for this chat's pool, show your stats and the current jackpot, and claim winnings. Try \"buy 5 tickets\" or \"put 3 in the pool\"."

	textGreeting = "Hi! I can buy lottery tickets for you or for this chat's pool. What would you like to do?"
	textUnknown  = "I'm not sure what you mean. Pick an option below or say \"help\"."
	textApology  = "Sorry, something went wrong on my side. Nothing was purchased."
)
