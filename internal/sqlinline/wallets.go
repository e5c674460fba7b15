package sqlinline

const QCreateOrGetWallet = `--sql fd2a853c-3c75-4fe9-9277-baa165f5877d
insert into wallets (user_id, email, coins, created_at, updated_at)
values ($1::text, $2::text, $3::int, now(), now())
on conflict (user_id) do update set
    email = case when wallets.email = '' then excluded.email else wallets.email end
returning user_id, email, coins, created_at, updated_at;
`

const QSelectWalletByUserID = `--sql 1bbd5dee-f620-43de-95d2-add81cddf5b4
select user_id, email, coins, created_at, updated_at
from wallets
where user_id = $1::text
limit 1;
`

const QSelectWalletByEmail = `--sql d6739197-234a-4718-b45e-fbdf525b3b78
select user_id, email, coins, created_at, updated_at
from wallets
where lower(email) = lower($1::text)
order by created_at
limit 1;
`

// QDebitWallet only matches when the balance covers the amount, so two
// concurrent debits can never drive coins below zero.
const QDebitWallet = `--sql d79da130-ec58-422b-b8cc-2973f6e2ecaf
update wallets
set coins = coins - $2::int,
    updated_at = now()
where user_id = $1::text
  and coins >= $2::int
returning coins;
`

const QCreditWallet = `--sql d6c6a829-c0f6-4e59-a442-4cd58caa82e6
update wallets
set coins = coins + $2::int,
    updated_at = now()
where user_id = $1::text
returning coins;
`

const QWalletExists = `--sql 1a125cb2-9bca-4556-b1df-6bbaa71b39cc
select exists(select 1 from wallets where user_id = $1::text);
`
