// Package progression содержит доменную модель прогресса пользователя.
//
// Это ядро движка геймификации платформы чтения. Пакет определяет:
//
//   - Сущности: Aggregate (агрегат прогресса), LedgerEntry (запись журнала)
//   - Чистую функцию перехода серии: NextStreak
//   - Интерфейсы хранилища: Store, UserTx
//
// # Архитектурные принципы
//
//  1. Все хранимые значения монотонны: очки, счётчики и рекорд серии
//     никогда не уменьшаются
//  2. Уровень - чистая проекция очков, не хранится как отдельная истина
//  3. Журнал начислений append-only и служит источником истины для
//     сверки totalPoints
//  4. Вся запись по одному пользователю сериализована транзакцией с
//     блокировкой строки агрегата
//
// # Серия активных дней
//
// Переход серии - чистая функция без I/O:
//
//	next, transition := NextStreak(agg.Streak, time.Now(), loc)
//
// Повторная активность в тот же день идемпотентна, событие из прошлого
// (рассинхрон часов) - полный no-op.
//
// # Пример использования
//
//	err := store.WithUser(ctx, userID, func(tx progression.UserTx) error {
//	    agg := tx.Aggregate()
//	    if _, err := agg.AddPoints(10); err != nil {
//	        return err
//	    }
//	    entry, err := progression.NewLedgerEntry(userID, 10, shared.ReasonQuizCorrect, quizID)
//	    if err != nil {
//	        return err
//	    }
//	    if err := tx.AppendLedger(entry); err != nil {
//	        return err
//	    }
//	    return tx.SaveAggregate(agg)
//	})
package progression
