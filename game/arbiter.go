package game

//Resolution is the outcome of a completed score quorum
type Resolution struct {
	RoomID         string
	Score          Score
	WinnerNickname string
	Winner         Player
	Loser          Player
}

func (r Resolution) HasWinner() bool {
	return r.WinnerNickname != ""
}

//Arbiter declares a winner only when both sides report a score that agrees on it
type Arbiter struct {
	WinScore int
}

func NewArbiter(winScore int) *Arbiter {
	if winScore < 1 {
		winScore = 1
	}
	return &Arbiter{WinScore: winScore}
}

//report adds the slot's report to the wait-list of the room and resolves once both slots are in.
//The caller must hold the room lock.
func (a *Arbiter) report(room *Room, slot PlayerNumber, score Score) (Resolution, bool) {
	present := false
	for _, item := range room.waitList {
		if item.PlayerNumber == slot {
			present = true
			break
		}
	}
	if !present {
		room.waitList = append(room.waitList, waitItem{PlayerNumber: slot, Score: score})
	}
	if len(room.waitList) != 2 {
		return Resolution{}, false
	}

	res := Resolution{RoomID: room.ID}
	winner, ok := a.winner(room.waitList[0].Score, room.waitList[1].Score)
	if ok {
		room.score = room.waitList[0].Score
		res.Winner = room.playerOf(winner)
		if winner == Player1 {
			res.Loser = room.player2
		} else {
			res.Loser = room.player1
		}
		res.WinnerNickname = res.Winner.Nickname
	}
	res.Score = room.score

	room.waitList = room.waitList[:0]
	return res, true
}

//winner returns the slot both reports agree has reached the threshold
func (a *Arbiter) winner(first Score, second Score) (PlayerNumber, bool) {
	w1, ok1 := a.leader(first)
	w2, ok2 := a.leader(second)
	if !ok1 || !ok2 || w1 != w2 {
		return "", false
	}
	return w1, true
}

func (a *Arbiter) leader(score Score) (PlayerNumber, bool) {
	p1 := score.P1 >= a.WinScore
	p2 := score.P2 >= a.WinScore
	switch {
	case p1 && !p2:
		return Player1, true
	case p2 && !p1:
		return Player2, true
	}
	return "", false
}

//Report is the locked variant of report, used when the caller doesn't hold the room
func (a *Arbiter) Report(room *Room, slot PlayerNumber, score Score) (Resolution, bool) {
	room.mu.Lock()
	defer room.mu.Unlock()
	return a.report(room, slot, score)
}
